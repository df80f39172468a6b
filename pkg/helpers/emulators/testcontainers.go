// Package emulators starts Google Cloud emulators in containers for
// integration tests and provisions the resources a test needs.
package emulators

// ImageContainer names an emulator image and the ports it serves on.
type ImageContainer struct {
	EmulatorImage    string
	EmulatorHTTPPort string
	EmulatorGRPCPort string
}

// GCImageContainer is an ImageContainer for a Google Cloud project.
type GCImageContainer struct {
	ImageContainer
	ProjectID       string
	SetEnvVariables bool
}
