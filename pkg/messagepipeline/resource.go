package messagepipeline

import (
	"fmt"
	"strings"
)

// ResourceName identifies a Pub/Sub topic or subscription within a project.
type ResourceName struct {
	ProjectID string
	ID        string
}

// SubscriptionPath renders the fully qualified subscription name.
func (r ResourceName) SubscriptionPath() string {
	return fmt.Sprintf("projects/%s/subscriptions/%s", r.ProjectID, r.ID)
}

// TopicPath renders the fully qualified topic name.
func (r ResourceName) TopicPath() string {
	return fmt.Sprintf("projects/%s/topics/%s", r.ProjectID, r.ID)
}

// ParseSubscriptionPath accepts "projects/<project>/subscriptions/<id>" or a bare
// subscription ID, which is resolved against defaultProject.
func ParseSubscriptionPath(path, defaultProject string) (ResourceName, error) {
	return parseResourcePath(path, "subscriptions", defaultProject)
}

// ParseTopicPath accepts "projects/<project>/topics/<id>" or a bare topic ID,
// which is resolved against defaultProject.
func ParseTopicPath(path, defaultProject string) (ResourceName, error) {
	return parseResourcePath(path, "topics", defaultProject)
}

func parseResourcePath(path, kind, defaultProject string) (ResourceName, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return ResourceName{}, fmt.Errorf("empty %s path", kind)
	}

	if !strings.Contains(path, "/") {
		if defaultProject == "" {
			return ResourceName{}, fmt.Errorf("%s %q has no project and no default project is set", kind, path)
		}
		return ResourceName{ProjectID: defaultProject, ID: path}, nil
	}

	parts := strings.Split(path, "/")
	if len(parts) != 4 || parts[0] != "projects" || parts[2] != kind || parts[1] == "" || parts[3] == "" {
		return ResourceName{}, fmt.Errorf("malformed %s path %q, want projects/<project>/%s/<id>", kind, path, kind)
	}
	return ResourceName{ProjectID: parts[1], ID: parts[3]}, nil
}
