package types

import (
	"fmt"
	"strings"
)

// Segment types used in unique IDs produced by the go-test engine.
const (
	SegmentEngine  = "engine"
	SegmentPackage = "package"
	SegmentTest    = "test"
	SegmentSubtest = "subtest"
)

// TestType describes what kind of execution-plan node an identifier refers to
type TestType string

const (
	TestTypeContainer        TestType = "CONTAINER"
	TestTypeTest             TestType = "TEST"
	TestTypeContainerAndTest TestType = "CONTAINER_AND_TEST"
)

// IsTest reports whether the node represents a runnable test case
func (t TestType) IsTest() bool {
	return t == TestTypeTest || t == TestTypeContainerAndTest
}

// IsContainer reports whether the node may have children
func (t TestType) IsContainer() bool {
	return t == TestTypeContainer || t == TestTypeContainerAndTest
}

// Segment is one hierarchical element of a UniqueID
type Segment struct {
	Type  string
	Value string
}

func (s Segment) String() string {
	return "[" + s.Type + ":" + s.Value + "]"
}

// UniqueID is the hierarchical path of a node in the execution plan,
// e.g. [engine:go-test]/[package:example.com/pkg]/[test:TestFoo]
type UniqueID struct {
	segments []Segment
}

// NewUniqueID builds a UniqueID from the given segments. The slice is copied.
func NewUniqueID(segments ...Segment) UniqueID {
	cp := make([]Segment, len(segments))
	copy(cp, segments)
	return UniqueID{segments: cp}
}

// parseUniqueID parses the String() form of a UniqueID. It is the inverse of String.
func parseUniqueID(s string) (UniqueID, error) {
	if s == "" {
		return UniqueID{}, fmt.Errorf("unique id cannot be empty")
	}
	var segments []Segment
	rest := s
	for rest != "" {
		if !strings.HasPrefix(rest, "[") {
			return UniqueID{}, fmt.Errorf("malformed unique id %q: expected '['", s)
		}
		end := strings.Index(rest, "]")
		if end == -1 {
			return UniqueID{}, fmt.Errorf("malformed unique id %q: missing ']'", s)
		}
		body := rest[1:end]
		typ, value, ok := strings.Cut(body, ":")
		if !ok || typ == "" {
			return UniqueID{}, fmt.Errorf("malformed segment %q in unique id %q", body, s)
		}
		segments = append(segments, Segment{Type: typ, Value: value})
		rest = rest[end+1:]
		if rest != "" {
			if !strings.HasPrefix(rest, "/") {
				return UniqueID{}, fmt.Errorf("malformed unique id %q: expected '/' between segments", s)
			}
			rest = rest[1:]
		}
	}
	return UniqueID{segments: segments}, nil
}

// Segments returns a copy of the segments
func (u UniqueID) Segments() []Segment {
	cp := make([]Segment, len(u.segments))
	copy(cp, u.segments)
	return cp
}

// Len returns the number of segments
func (u UniqueID) Len() int {
	return len(u.segments)
}

// Segment returns the segment at index i, and false if out of range
func (u UniqueID) Segment(i int) (Segment, bool) {
	if i < 0 || i >= len(u.segments) {
		return Segment{}, false
	}
	return u.segments[i], true
}

// LastSegment returns the final segment, and false for an empty id
func (u UniqueID) LastSegment() (Segment, bool) {
	return u.Segment(len(u.segments) - 1)
}

// Append returns a new UniqueID with seg appended
func (u UniqueID) Append(seg Segment) UniqueID {
	segments := make([]Segment, len(u.segments), len(u.segments)+1)
	copy(segments, u.segments)
	return UniqueID{segments: append(segments, seg)}
}

// Parent returns the id with its last segment removed
func (u UniqueID) Parent() (UniqueID, bool) {
	if len(u.segments) <= 1 {
		return UniqueID{}, false
	}
	return NewUniqueID(u.segments[:len(u.segments)-1]...), true
}

// IsZero reports whether the id has no segments
func (u UniqueID) IsZero() bool {
	return len(u.segments) == 0
}

func (u UniqueID) String() string {
	parts := make([]string, len(u.segments))
	for i, s := range u.segments {
		parts[i] = s.String()
	}
	return strings.Join(parts, "/")
}

// TestIdentifier is the engine-issued handle for one node of the execution plan.
// It is a value type and never mutated once issued.
type TestIdentifier struct {
	UniqueID            UniqueID
	ParentID            UniqueID
	DisplayName         string
	LegacyReportingName string
	Type                TestType
}

// Key returns the string used to deduplicate identifiers within a session
func (id TestIdentifier) Key() string {
	return id.UniqueID.String()
}

// IsTest reports whether the identifier is a leaf test
func (id TestIdentifier) IsTest() bool {
	return id.Type.IsTest()
}

// SuiteQualifiedName joins the second segment of the unique id with the last one,
// e.g. "example.com/pkg.TestFoo". Returns the display name when the id is too short.
func (id TestIdentifier) SuiteQualifiedName() string {
	suite, ok := id.UniqueID.Segment(1)
	if !ok {
		return id.DisplayName
	}
	last, _ := id.UniqueID.LastSegment()
	return suite.Value + "." + last.Value
}

func (id TestIdentifier) String() string {
	return id.UniqueID.String()
}
