package vfs

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homefs/internal/common"
)

func testPolicy(t *testing.T) (*Policy, string) {
	t.Helper()
	r, dataDir := testRegistry(t)
	p, err := NewPolicy(r, nil, nil)
	require.NoError(t, err)
	return p, dataDir
}

func TestOperationsSet(t *testing.T) {
	t.Parallel()

	var empty Operations
	assert.True(t, empty.IsEmpty())
	assert.Equal(t, "[]", empty.String())

	set := NewOperations(OpCopy, OpMove)
	assert.True(t, set.Has(OpCopy))
	assert.False(t, set.Has(OpDelete))
	assert.Equal(t, []Operation{OpCopy, OpMove}, set.With(OpMove).List())
	assert.Equal(t, []Operation{OpMove}, set.Without(OpCopy).List())
	assert.Equal(t, []string{"copy", "move", "delete"}, set.Union(NewOperations(OpDelete)).Names())
	assert.False(t, set.Has(numOperations))
}

func TestOperationsJSON(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(NewOperations(OpExtract, OpCreateWithin))
	require.NoError(t, err)
	assert.JSONEq(t, `["createWithin","extract"]`, string(data))

	data, err = json.Marshal(Operations{})
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(data))

	var set Operations
	require.NoError(t, json.Unmarshal([]byte(`["rename","copyTo"]`), &set))
	assert.Equal(t, NewOperations(OpRename, OpCopyTo), set)

	err = json.Unmarshal([]byte(`["fly"]`), &set)
	assert.True(t, common.HasCode(err, common.EINVAL))
}

func TestParseOperation(t *testing.T) {
	t.Parallel()
	for op := Operation(0); op < numOperations; op++ {
		got, err := ParseOperation(op.String())
		require.NoError(t, err)
		assert.Equal(t, op, got)
	}
}

func TestPolicyOperations(t *testing.T) {
	t.Parallel()
	p, dataDir := testPolicy(t)
	sys := func(parts ...string) string { return filepath.Join(append([]string{dataDir}, parts...)...) }

	tests := []struct {
		name string
		sys  string
		v    string
		kind EntryKind
		want []Operation
	}{
		{
			"home base", sys("home"), "/Home", KindDirectory,
			[]Operation{OpCreateWithin, OpCopy, OpCopyTo, OpMoveTo, OpTrash, OpShare, OpFavorite},
		},
		{
			"missing home base", sys("home"), "/Home", KindUnknown,
			[]Operation{OpCreateWithin, OpCopy, OpCopyTo, OpMoveTo, OpTrash, OpShare, OpFavorite},
		},
		{
			"trash root", sys("trash"), "/Trash", KindDirectory,
			[]Operation{OpCopy, OpCopyTo, OpMoveTo},
		},
		{
			"plain directory", sys("home", "Docs"), "/Home/Docs", KindDirectory,
			[]Operation{OpCreateWithin, OpRename, OpCopy, OpCopyTo, OpMove, OpMoveTo, OpDelete, OpTrash, OpShare, OpFavorite, OpArchive},
		},
		{
			"trashed directory", sys("trash", "Docs"), "/Trash/Docs", KindDirectory,
			[]Operation{OpCopy, OpCopyTo, OpMove, OpMoveTo, OpDelete, OpRestore},
		},
		{
			"directory nested in trash", sys("trash", "Docs", "sub"), "/Trash/Docs/sub", KindDirectory,
			[]Operation{OpCopy, OpCopyTo, OpMove, OpMoveTo, OpDelete},
		},
		{
			"plain file", sys("home", "a.txt"), "/Home/a.txt", KindOther,
			[]Operation{OpRename, OpCopy, OpMove, OpDelete, OpTrash},
		},
		{
			"archive file", sys("home", "a.tar.gz"), "/Home/a.tar.gz", KindOther,
			[]Operation{OpRename, OpCopy, OpMove, OpDelete, OpTrash, OpExtract},
		},
		{
			"missing file", sys("home", "gone.zip"), "/Home/gone.zip", KindUnknown,
			[]Operation{OpRename, OpCopy, OpMove, OpDelete, OpTrash, OpExtract},
		},
		{
			"trashed file", sys("trash", "a.zip"), "/Trash/a.zip", KindOther,
			[]Operation{OpCopy, OpMove, OpDelete, OpRestore},
		},
		{
			"downloads is protected", sys("home", "Downloads"), "/Home/Downloads", KindDirectory,
			[]Operation{OpCreateWithin, OpCopy, OpCopyTo, OpMoveTo, OpShare, OpFavorite, OpArchive},
		},
		{
			"app directory is protected and unshareable", sys("app-data", "app"), "/Apps/app", KindDirectory,
			[]Operation{OpCreateWithin, OpCopy, OpCopyTo, OpMoveTo, OpFavorite, OpArchive},
		},
		{
			"file deep in apps is unshareable only", sys("app-data", "app", "x.log"), "/Apps/app/x.log", KindOther,
			[]Operation{OpRename, OpCopy, OpMove, OpDelete, OpTrash},
		},
		{
			"external drive root", sys("external", "usb"), "/External/usb", KindDirectory,
			[]Operation{OpCreateWithin, OpCopy, OpCopyTo, OpMoveTo, OpFavorite, OpArchive},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := p.Operations(tt.sys, tt.v, tt.kind)
			assert.Equal(t, NewOperations(tt.want...).Names(), got.Names())
		})
	}
}

func TestProtectedPathsNeverAltered(t *testing.T) {
	t.Parallel()
	p, dataDir := testPolicy(t)

	protected := map[string]string{
		"/Apps/nextcloud":  filepath.Join(dataDir, "app-data", "nextcloud"),
		"/Home/Downloads":  filepath.Join(dataDir, "home", "Downloads"),
		"/External/usb":    filepath.Join(dataDir, "external", "usb"),
		"/External/nvme-1": filepath.Join(dataDir, "external", "nvme-1"),
		"/Apps/x.json":     filepath.Join(dataDir, "app-data", "x.json"),
	}
	for v, s := range protected {
		assert.True(t, p.IsProtected(v), v)
		for _, kind := range []EntryKind{KindUnknown, KindDirectory, KindOther} {
			ops := p.Operations(s, v, kind)
			for _, op := range []Operation{OpMove, OpRename, OpDelete, OpTrash} {
				assert.False(t, ops.Has(op), "%s (kind %d) must not allow %s", v, kind, op)
			}
			assert.True(t, ops.Has(OpCopy), "%s can still be copied", v)
		}
	}

	for _, v := range []string{"/Apps", "/Apps/app/data", "/Home/Downloads/movie.mkv", "/Home/Downloadsx", "/External"} {
		assert.False(t, p.IsProtected(v), v)
	}
}

func TestUnshareable(t *testing.T) {
	t.Parallel()
	p, _ := testPolicy(t)

	for _, v := range []string{"/Apps", "/Apps/a", "/Apps/a/b/c", "/External", "/External/usb/dir"} {
		assert.True(t, p.IsUnshareable(v), v)
	}
	for _, v := range []string{"/Home", "/Home/Apps", "/Applications"} {
		assert.False(t, p.IsUnshareable(v), v)
	}
}

func TestNewPolicyRejectsBadPattern(t *testing.T) {
	t.Parallel()
	r, _ := testRegistry(t)
	_, err := NewPolicy(r, []string{"/Home/[unclosed"}, nil)
	assert.True(t, common.HasCode(err, common.EINVAL))
}

func TestIsArchive(t *testing.T) {
	t.Parallel()
	for name, want := range map[string]bool{
		"a.tar.gz":  true,
		"A.TGZ":     true,
		"b.zip":     true,
		"c.7z":      true,
		"d.rar":     true,
		"e.tar.xz":  true,
		"notes.txt": false,
		"zip":       false,
		"photo.jpg": false,
	} {
		assert.Equal(t, want, IsArchive(name), name)
	}
}
