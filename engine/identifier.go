package engine

import (
	"strings"

	"github.com/ethereum-optimism/infra/op-session/types"
)

// EngineName is the first segment of every identifier issued by this engine
const EngineName = "go-test"

var engineSegment = types.Segment{Type: types.SegmentEngine, Value: EngineName}

// PackageID returns the container identifier of a package
func PackageID(pkg string) types.TestIdentifier {
	uid := types.NewUniqueID(engineSegment, types.Segment{Type: types.SegmentPackage, Value: pkg})
	parent, _ := uid.Parent()
	return types.TestIdentifier{
		UniqueID:            uid,
		ParentID:            parent,
		DisplayName:         pkg,
		LegacyReportingName: pkg,
		Type:                types.TestTypeContainer,
	}
}

// TestID returns the identifier of a test or subtest. test is the name reported
// by go test, e.g. "TestFoo/case_1".
func TestID(pkg, test string, typ types.TestType) types.TestIdentifier {
	parts := strings.Split(test, "/")
	uid := types.NewUniqueID(
		engineSegment,
		types.Segment{Type: types.SegmentPackage, Value: pkg},
		types.Segment{Type: types.SegmentTest, Value: parts[0]},
	)
	for _, sub := range parts[1:] {
		uid = uid.Append(types.Segment{Type: types.SegmentSubtest, Value: sub})
	}
	parent, _ := uid.Parent()
	return types.TestIdentifier{
		UniqueID:            uid,
		ParentID:            parent,
		DisplayName:         parts[len(parts)-1],
		LegacyReportingName: pkg + "." + test,
		Type:                typ,
	}
}

// parentTest returns the name of the enclosing test, and false for top-level tests
func parentTest(test string) (string, bool) {
	i := strings.LastIndex(test, "/")
	if i < 0 {
		return "", false
	}
	return test[:i], true
}
