package provision

import "errors"

// Sentinel errors.
var (
	// ErrInvalidRequest wraps validation failures of action inputs.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrDriveNotFound is returned when a site has no library of the given name.
	ErrDriveNotFound = errors.New("drive not found")

	// ErrItemNotFound is returned when a drive path does not resolve to an item.
	ErrItemNotFound = errors.New("item not found")

	// ErrSiteTimeout is returned when a new site is still not available after
	// the configured number of polls.
	ErrSiteTimeout = errors.New("timed out waiting for SharePoint site provisioning")

	// ErrSiteCreationFailed is returned when SharePoint reports a failed
	// site creation.
	ErrSiteCreationFailed = errors.New("SharePoint site creation failed")

	// ErrNoHost is returned when a communication site is requested for a
	// tenant without a SharePoint host.
	ErrNoHost = errors.New("communication sites require a SharePoint host")

	// ErrEmptyResponse is returned when Graph answers without the expected id.
	ErrEmptyResponse = errors.New("upstream response is missing an id")
)
