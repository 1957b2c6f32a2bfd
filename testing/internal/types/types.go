package types

// TestingTB is the subset of testing.TB the fixtures need. Depending on the
// interface rather than *testing.T keeps the fixtures usable from other
// runners that provide a compatible type.
type TestingTB interface {
	Cleanup(func())
	Fail()
	FailNow()
	Failed() bool
	Fatal(args ...interface{})
	Helper()
	Log(args ...interface{})
	Logf(format string, args ...interface{})
	Name() string
	Skip(args ...interface{})
}
