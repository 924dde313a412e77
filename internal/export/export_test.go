package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resumeforge/internal/account"
	"resumeforge/internal/auth"
	"resumeforge/internal/database"
	"resumeforge/internal/database/testdb"
	"resumeforge/internal/errcode"
	"resumeforge/internal/resume"
)

func TestRenderOmitsEmptySections(t *testing.T) {
	html, err := Render(resume.Snapshot{
		Title: "Backend",
		Content: resume.Content{
			PersonalInfo: resume.PersonalInfo{Name: "Jane <Doe>", Email: "jane@x.com", Location: "Berlin"},
			Summary:      "Go engineer",
			Skills:       []string{"Go", "SQL"},
		},
	})
	require.NoError(t, err)

	assert.Contains(t, html, "Jane &lt;Doe&gt;")
	assert.Contains(t, html, "jane@x.com • Berlin")
	assert.Contains(t, html, "<h2>Summary</h2>")
	assert.Contains(t, html, "Go, SQL")
	assert.Contains(t, html, "size: A4")
	assert.NotContains(t, html, "<h2>Experience</h2>")
	assert.NotContains(t, html, "<h2>Education</h2>")
	assert.NotContains(t, html, "<h2>Projects</h2>")
}

func TestRenderEntries(t *testing.T) {
	html, err := Render(resume.Snapshot{Content: resume.Content{
		Experience: []resume.Experience{{Title: "Engineer", Company: "Acme", StartDate: "2020", EndDate: "Present", Description: "Built things"}},
		Education:  []resume.Education{{Degree: "BSc", School: "TU", GPA: "3.8"}},
		Projects:   []resume.Project{{Name: "forge", Technologies: "Go", Link: "https://example.com"}},
	}})
	require.NoError(t, err)

	assert.Contains(t, html, "Acme • 2020 – Present")
	assert.Contains(t, html, "GPA: 3.8")
	assert.Contains(t, html, "https://example.com")
	assert.NotContains(t, html, "<h2>Summary</h2>")
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "senior-go-engineer-acme.pdf", Filename("Senior Go Engineer @ Acme!", 1))
	assert.Equal(t, "master-resume.pdf", Filename(resume.MasterTitle, 1))
	assert.Equal(t, "resume-9.pdf", Filename("  ***  ", 9))
	assert.Equal(t, "resume-9.pdf", Filename("简历", 9))
}

type fakeRenderer struct {
	err  error
	html string
}

func (r *fakeRenderer) FromHTML(_ context.Context, html string) ([]byte, error) {
	r.html = html
	if r.err != nil {
		return nil, r.err
	}
	return []byte("%PDF-1.7 fake"), nil
}

type fakeArchive struct {
	objects   map[string][]byte
	uploadErr error
	purged    []string
}

func (a *fakeArchive) Put(_ context.Context, key string, data []byte, _ string) error {
	if a.uploadErr != nil {
		return a.uploadErr
	}
	a.objects[key] = data
	return nil
}

func (a *fakeArchive) PresignDownload(_ context.Context, key, filename string, _ time.Duration) (string, error) {
	return "https://minio.test/" + key + "?filename=" + filename, nil
}

func (a *fakeArchive) DeletePrefix(_ context.Context, prefix string) error {
	a.purged = append(a.purged, prefix)
	return nil
}

func newService(t *testing.T, renderer Renderer, archive Archive) (*Service, *auth.Identity, *database.Resume) {
	t.Helper()
	db := testdb.New(t)
	guard := account.NewGuard(db)
	id := &auth.Identity{Subject: "jane"}
	_, master, err := account.NewService(db, guard, nil).Onboard(context.Background(), id, resume.Content{
		PersonalInfo: resume.PersonalInfo{Name: "Jane Doe"},
	})
	require.NoError(t, err)
	return NewService(db, guard, renderer, archive, time.Minute, nil), id, master
}

func TestExportArchivesAndLinks(t *testing.T) {
	archive := &fakeArchive{objects: map[string][]byte{}}
	renderer := &fakeRenderer{}
	svc, id, master := newService(t, renderer, archive)
	ctx := context.Background()

	_, err := svc.Link(ctx, id, master.ID)
	assert.Equal(t, errcode.NotFound, errcode.CodeOf(err))

	doc, err := svc.Export(ctx, id, master.ID)
	require.NoError(t, err)
	assert.Equal(t, "master-resume.pdf", doc.Filename)
	assert.True(t, bytes.HasPrefix(doc.Data, []byte("%PDF")))
	assert.Contains(t, renderer.html, "Jane Doe")

	require.Len(t, archive.objects, 1)
	for key := range archive.objects {
		assert.True(t, strings.HasPrefix(key, "exports/"))
		assert.True(t, strings.HasSuffix(key, ".pdf"))
	}

	link, err := svc.Link(ctx, id, master.ID)
	require.NoError(t, err)
	assert.Contains(t, link, "filename=master-resume.pdf")

	require.NoError(t, svc.Purge(ctx, master.ID))
	assert.Equal(t, []string{fmt.Sprintf("exports/%d/%d/", master.UserID, master.ID)}, archive.purged)
	_, err = svc.Link(ctx, id, master.ID)
	assert.Equal(t, errcode.NotFound, errcode.CodeOf(err))
}

func TestPurgeRemovesUnrecordedObjects(t *testing.T) {
	archive := &fakeArchive{objects: map[string][]byte{}}
	svc, _, master := newService(t, &fakeRenderer{}, archive)
	ctx := context.Background()

	// 上传成功但没有登记的对象，简历已被软删除。
	want := fmt.Sprintf("exports/%d/%d/", master.UserID, master.ID)
	archive.objects[want+"orphan.pdf"] = []byte("%PDF")
	require.NoError(t, svc.db.Delete(&database.Resume{}, master.ID).Error)

	require.NoError(t, svc.Purge(ctx, master.ID))
	assert.Equal(t, []string{want}, archive.purged)

	require.NoError(t, svc.Purge(ctx, 4242))
	assert.Len(t, archive.purged, 1)
}

func TestExportSurvivesArchiveFailure(t *testing.T) {
	archive := &fakeArchive{objects: map[string][]byte{}, uploadErr: errors.New("minio down")}
	svc, id, master := newService(t, &fakeRenderer{}, archive)

	doc, err := svc.Export(context.Background(), id, master.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, doc.Data)
}

func TestExportRenderFailure(t *testing.T) {
	svc, id, master := newService(t, &fakeRenderer{err: errors.New("chromium crashed")}, nil)

	_, err := svc.Export(context.Background(), id, master.ID)
	assert.Equal(t, errcode.Misc, errcode.CodeOf(err))
}

func TestExportOwnership(t *testing.T) {
	svc, _, master := newService(t, &fakeRenderer{}, nil)

	_, err := svc.Export(context.Background(), &auth.Identity{Subject: "mallory"}, master.ID)
	assert.Equal(t, errcode.Unauthenticated, errcode.CodeOf(err))
}
