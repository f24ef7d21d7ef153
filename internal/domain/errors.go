package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business-level errors that can occur in the system.
// These errors are used across layers to communicate specific failure conditions.
var (
	// Config errors
	ErrInvalidConfig = errors.New("invalid configuration")

	// Image errors
	ErrImagePullFailed = errors.New("failed to pull image")

	// Container errors
	ErrContainerLaunch     = errors.New("container did not reach running state")
	ErrContainerNotRunning = errors.New("container is not running")
	ErrContainerStarted    = errors.New("fixture already started")
	ErrFixtureStopped      = errors.New("fixture already stopped")

	// Session errors
	ErrSessionClosed = errors.New("exec session closed")
)

// ConfigurationError reports a malformed ContainerSpec.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// ImagePullError reports a registry, auth or network failure while pulling an image.
type ImagePullError struct {
	Image string
	Cause error
}

func (e *ImagePullError) Error() string {
	return fmt.Sprintf("failed to pull image %s: %v", e.Image, e.Cause)
}

func (e *ImagePullError) Unwrap() error {
	return e.Cause
}

func (e *ImagePullError) Is(target error) bool {
	return target == ErrImagePullFailed
}

// ContainerLaunchError reports that a container was never observed running.
// Cause holds the last inspection failure, or a description of the last
// snapshot when inspection succeeded but the container was not running.
type ContainerLaunchError struct {
	ContainerID string
	Cause       error
	// Last is the last successful inspection, if any.
	Last *InspectionState
}

func (e *ContainerLaunchError) Error() string {
	return fmt.Sprintf("container %s did not reach running state: %v", ShortID(e.ContainerID), e.Cause)
}

func (e *ContainerLaunchError) Unwrap() error {
	return e.Cause
}

func (e *ContainerLaunchError) Is(target error) bool {
	return target == ErrContainerLaunch
}

// ShortID truncates a container ID to the 12 characters the Docker CLI shows.
func ShortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
