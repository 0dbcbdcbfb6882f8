package taskname

const (
	// License event tasks
	LicenseEvent = "license:event"
)
