package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testID() UniqueID {
	return NewUniqueID(
		Segment{Type: SegmentEngine, Value: "go-test"},
		Segment{Type: SegmentPackage, Value: "example.com/pkg"},
		Segment{Type: SegmentTest, Value: "TestFoo"},
		Segment{Type: SegmentSubtest, Value: "case_1"},
	)
}

func TestUniqueID_StringAndParse(t *testing.T) {
	id := testID()
	s := id.String()
	assert.Equal(t, "[engine:go-test]/[package:example.com/pkg]/[test:TestFoo]/[subtest:case_1]", s)

	parsed, err := parseUniqueID(s)
	require.NoError(t, err)
	assert.Equal(t, id.Segments(), parsed.Segments())
	assert.Equal(t, s, parsed.String())
}

func TestParseUniqueIDErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "missing bracket", input: "engine:go-test"},
		{name: "unterminated", input: "[engine:go-test"},
		{name: "missing type", input: "[:value]"},
		{name: "missing separator", input: "[engine:a][package:b]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseUniqueID(tt.input)
			assert.Error(t, err)
		})
	}
}

func TestUniqueID_AppendDoesNotAlias(t *testing.T) {
	base := NewUniqueID(Segment{Type: SegmentEngine, Value: "go-test"})
	a := base.Append(Segment{Type: SegmentPackage, Value: "a"})
	b := base.Append(Segment{Type: SegmentPackage, Value: "b"})

	assert.Equal(t, 1, base.Len())
	last, _ := a.LastSegment()
	assert.Equal(t, "a", last.Value)
	last, _ = b.LastSegment()
	assert.Equal(t, "b", last.Value)

	parent, ok := a.Parent()
	require.True(t, ok)
	assert.Equal(t, base.String(), parent.String())

	_, ok = base.Parent()
	assert.False(t, ok)
}

func TestTestIdentifier_SuiteQualifiedName(t *testing.T) {
	id := TestIdentifier{UniqueID: testID(), DisplayName: "case_1", Type: TestTypeTest}
	assert.Equal(t, "example.com/pkg.case_1", id.SuiteQualifiedName())

	short := TestIdentifier{
		UniqueID:    NewUniqueID(Segment{Type: SegmentEngine, Value: "go-test"}),
		DisplayName: "go-test",
		Type:        TestTypeContainer,
	}
	assert.Equal(t, "go-test", short.SuiteQualifiedName())
}

func TestTestType(t *testing.T) {
	assert.True(t, TestTypeTest.IsTest())
	assert.True(t, TestTypeContainerAndTest.IsTest())
	assert.False(t, TestTypeContainer.IsTest())

	assert.True(t, TestTypeContainer.IsContainer())
	assert.True(t, TestTypeContainerAndTest.IsContainer())
	assert.False(t, TestTypeTest.IsContainer())
}

func TestTally_Status(t *testing.T) {
	assert.Equal(t, OutcomePassed, Tally{}.Status())
	assert.Equal(t, OutcomePassed, Tally{Passed: 2, Skipped: 1}.Status())
	assert.Equal(t, OutcomeSkipped, Tally{Skipped: 3}.Status())
	assert.Equal(t, OutcomeFailed, Tally{Passed: 10, Failed: 1}.Status())
	assert.InDelta(t, 50.0, Tally{Passed: 1, Failed: 1}.PassRate(), 0.001)
	assert.Zero(t, Tally{}.PassRate())
}
