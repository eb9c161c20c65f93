package dms_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"dms/internal/dms"
	"dms/internal/testutil"
)

const (
	alice = "alice"
	bob   = "bob"
	carol = "carol"
)

func newService(t *testing.T, opts ...func(*dms.Options)) *testutil.TestService {
	t.Helper()
	return testutil.NewTestService(t, opts...)
}

func mustFolder(t *testing.T, ts *testutil.TestService, actor, parentID, name string) *dms.Node {
	t.Helper()
	n, err := ts.CreateNode(context.Background(), actor, parentID, name, dms.KindFolder)
	require.NoError(t, err)
	return n
}

func mustUpload(t *testing.T, ts *testutil.TestService, actor, parentID, relPath, content string) *dms.UploadResult {
	t.Helper()
	res, err := ts.Upload(context.Background(), actor, dms.UploadRequest{
		ParentID:     parentID,
		RelativePath: relPath,
		ContentType:  "text/plain",
		Size:         int64(len(content)),
	}, strings.NewReader(content))
	require.NoError(t, err)
	return res
}

func mustGrant(t *testing.T, ts *testutil.TestService, actor, nodeID, principal string, level dms.AccessLevel) {
	t.Helper()
	out, err := ts.Grant(context.Background(), actor, nodeID, principal, level)
	require.NoError(t, err)
	require.NotNil(t, out.Grant, "expected an applied grant")
}

func readContent(t *testing.T, ts *testutil.TestService, actor, fileID, versionID string) string {
	t.Helper()
	rc, err := ts.OpenVersion(context.Background(), actor, fileID, versionID)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func levelOf(t *testing.T, ts *testutil.TestService, nodeID, principal string) dms.AccessLevel {
	t.Helper()
	acc, err := ts.ResolveEffectiveLevel(context.Background(), nodeID, principal)
	require.NoError(t, err)
	return acc.Level
}

func childNames(t *testing.T, ts *testutil.TestService, actor, parentID string) []string {
	t.Helper()
	nodes, err := ts.ListChildren(context.Background(), actor, parentID, false)
	require.NoError(t, err)
	names := make([]string, len(nodes))
	for i, n := range nodes {
		names[i] = n.Name
	}
	return names
}

func storedNode(t *testing.T, ts *testutil.TestService, id string) *dms.Node {
	t.Helper()
	n, err := ts.DB.GetNode(context.Background(), id)
	require.NoError(t, err)
	return n
}
