package messagepipeline_test

import (
	"testing"

	"github.com/illmade-knight/beaver/pkg/messagepipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSubscriptionPath(t *testing.T) {
	testCases := []struct {
		name           string
		path           string
		defaultProject string
		want           messagepipeline.ResourceName
		wantErr        string
	}{
		{
			name: "full path",
			path: "projects/p1/subscriptions/s1",
			want: messagepipeline.ResourceName{ProjectID: "p1", ID: "s1"},
		},
		{
			name:           "bare id uses default project",
			path:           "s1",
			defaultProject: "p2",
			want:           messagepipeline.ResourceName{ProjectID: "p2", ID: "s1"},
		},
		{
			name:    "bare id without project",
			path:    "s1",
			wantErr: "no default project",
		},
		{
			name:    "topic path is not a subscription",
			path:    "projects/p1/topics/t1",
			wantErr: "malformed",
		},
		{
			name:    "missing id",
			path:    "projects/p1/subscriptions/",
			wantErr: "malformed",
		},
		{
			name:    "empty",
			path:    "  ",
			wantErr: "empty",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := messagepipeline.ParseSubscriptionPath(tc.path, tc.defaultProject)
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, "projects/"+tc.want.ProjectID+"/subscriptions/"+tc.want.ID, got.SubscriptionPath())
		})
	}
}

func TestParseTopicPath(t *testing.T) {
	got, err := messagepipeline.ParseTopicPath("projects/p1/topics/t1", "ignored")
	require.NoError(t, err)
	assert.Equal(t, messagepipeline.ResourceName{ProjectID: "p1", ID: "t1"}, got)
	assert.Equal(t, "projects/p1/topics/t1", got.TopicPath())

	_, err = messagepipeline.ParseTopicPath("projects/p1/subscriptions/s1", "")
	assert.ErrorContains(t, err, "malformed")
}
