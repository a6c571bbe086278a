package testcase

// TestSuite is an ordered collection of test cases.
type TestSuite struct {
	// Tests holds the test cases of the suite.
	Tests []*TestCase
}

// NewTestSuite returns a suite holding the provided tests.
func NewTestSuite(tests ...*TestCase) *TestSuite {
	return &TestSuite{Tests: append(make([]*TestCase, 0, len(tests)), tests...)}
}

// Add appends a test case to the suite.
func (s *TestSuite) Add(tc *TestCase) {
	s.Tests = append(s.Tests, tc)
}

// Remove deletes the test case at index.
func (s *TestSuite) Remove(index int) {
	s.Tests = append(s.Tests[:index], s.Tests[index+1:]...)
}

// Size returns the number of test cases.
func (s *TestSuite) Size() int {
	return len(s.Tests)
}

// TotalLength returns the number of statements across all test cases.
func (s *TestSuite) TotalLength() int {
	total := 0
	for _, tc := range s.Tests {
		total += tc.Size()
	}
	return total
}

// Clone returns a deep copy of the suite.
func (s *TestSuite) Clone() *TestSuite {
	c := &TestSuite{Tests: make([]*TestCase, len(s.Tests))}
	for i, tc := range s.Tests {
		c.Tests[i] = tc.Clone()
	}
	return c
}
