package submission

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/3leaps/thsubmit/pkg/platform"
	"github.com/3leaps/thsubmit/pkg/treeherder"
)

const (
	testRepo     = "mozilla-central"
	testRevision = "0123456789abcdef0123"
	testShortRev = "0123456789ab"
	testHash     = "f9a7e1c3d5b2"
)

var linux64 = platform.Platform{OSName: "linux", Platform: "linux64", Architecture: "x86_64"}

type fakeLookup struct {
	hash  string
	err   error
	calls int
	repo  string
	rev   string
}

func (f *fakeLookup) RevisionHash(_ context.Context, repository, revision string) (string, error) {
	f.calls++
	f.repo = repository
	f.rev = revision
	return f.hash, f.err
}

type fakePoster struct {
	err   error
	posts []treeherder.JobCollection
	repos []string
}

func (f *fakePoster) PostCollection(_ context.Context, repository string, jobs treeherder.JobCollection) error {
	if f.err != nil {
		return f.err
	}
	// Snapshot the payload as sent; callers keep mutating the record.
	b, err := jobs.JSON()
	if err != nil {
		return err
	}
	var cp treeherder.JobCollection
	if err := json.Unmarshal(b, &cp); err != nil {
		return err
	}
	f.posts = append(f.posts, cp)
	f.repos = append(f.repos, repository)
	return nil
}

func (f *fakePoster) JobsURL(repository, revision string) string {
	return "https://treeherder.test/#/jobs?repo=" + repository + "&revision=" + revision
}

func (f *fakePoster) last(t *testing.T) *treeherder.JobRecord {
	t.Helper()
	require.NotEmpty(t, f.posts)
	coll := f.posts[len(f.posts)-1]
	require.Len(t, coll, 1)
	return coll[0]
}

type fakeUploader struct {
	url  string
	err  error
	path string
	key  string
}

func (f *fakeUploader) UploadLog(_ context.Context, path, key string) (string, error) {
	f.path = path
	f.key = key
	return f.url, f.err
}

func testSettings() JobSettings {
	return JobSettings{
		GroupName:    "TES",
		GroupSymbol:  "TEST",
		JobName:      "Trial (en-US)",
		JobSymbol:    "en-US",
		Tier:         2,
		LogReference: "https://logs.test/live.log",
	}
}

func newTestBuilder(lookup RevisionLookup, opts ...BuilderOption) *Builder {
	guids := []string{"11111111-1111-4111-8111-111111111111", "22222222-2222-4222-8222-222222222222"}
	n := 0
	base := []BuilderOption{
		WithPlatformSource(func(context.Context) (platform.Platform, error) { return linux64, nil }),
		WithHostname(func() string { return "ci-1.example.org" }),
		WithGUIDGenerator(func() string {
			g := guids[n%len(guids)]
			n++
			return g
		}),
		WithBuilderClock(func() time.Time { return time.Unix(1700000000, 0) }),
	}
	return NewBuilder(Target{Repository: testRepo, Revision: testRevision}, testSettings(), lookup, append(base, opts...)...)
}

var errBoom = errors.New("boom")
