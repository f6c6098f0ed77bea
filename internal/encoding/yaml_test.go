package encoding

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"guardian-go/internal/model"
)

func sampleTree() *model.FileTreeNode {
	ref := model.ContentRef{
		Hash:  model.NewFileHash(model.AlgorithmSHA256, []byte{0xde, 0xad, 0xbe, 0xef}),
		Owner: "alice",
	}
	return model.NewDirectoryNode("root",
		model.NewFileNode("a.txt", ref, model.FileMetadata{Size: 4, LastModifiedMillis: 1000}),
		model.NewDirectoryNode("empty"),
		model.NewSymlinkNode("link", "a.txt"),
	)
}

func TestYAMLEncoder_Tree(t *testing.T) {
	enc := NewYAMLEncoder()
	tree := sampleTree()

	data, err := enc.Encode(tree)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	var got model.FileTreeNode
	if err := enc.Decode(data, &got); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if diff := cmp.Diff(tree, &got); diff != "" {
		t.Errorf("tree mismatch (-want +got):\n%s", diff)
	}
}

func TestYAMLEncoder_Deterministic(t *testing.T) {
	enc := NewYAMLEncoder()
	a, _ := enc.Encode(sampleTree())
	b, _ := enc.Encode(sampleTree())
	if string(a) != string(b) {
		t.Error("Encode() is not deterministic for equal trees")
	}
}

func TestYAMLEncoder_Backup(t *testing.T) {
	enc := NewYAMLEncoder()
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tree := model.BlobIdentifier{Hash: model.NewFileHash(model.AlgorithmSHA256, []byte{1, 2, 3, 4}), Owner: "alice"}
	backup := &model.Backup{
		ID:       "docs",
		Device:   model.DefaultDevice,
		FileRoot: "/home/alice/docs",
		Schedule: model.Schedule{{SnapshotLifetime: model.Month, Interval: model.InfiniteDuration, LastExecution: ts}},
	}
	backup.AddSnapshot(model.NewSnapshot(ts, model.Month, tree, nil))

	data, err := enc.Encode(backup)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	var got model.Backup
	if err := enc.Decode(data, &got); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(got.Snapshots) != 1 || !got.Snapshots[0].Equal(backup.Snapshots[0]) {
		t.Errorf("snapshot mismatch: got %+v, want %+v", got.Snapshots, backup.Snapshots)
	}
	if !got.Schedule[0].Interval.IsInfinite() {
		t.Error("interval lost its infinite flag")
	}
}

func TestYAMLEncoder_DecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"garbage", ":::not yaml"},
		{"unknown field", "kind: file\nname: x\nbogus: 1\n"},
		{"wrong type", "kind: [1, 2]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var node model.FileTreeNode
			err := NewYAMLEncoder().Decode([]byte(tt.data), &node)
			if !errors.Is(err, model.ErrDecode) {
				t.Errorf("Decode() error = %v, want ErrDecode", err)
			}
		})
	}
}
