package internal

import (
	"fmt"
	"os"
)

// AddDirectoryChunk creates a directory relative to the installation root.
// Applying it when the directory already exists is not an error, so a patch
// can be re-run to heal a partial install.
type AddDirectoryChunk struct {
	DirName string
}

func decodeAddDirectoryChunk(r *binaryReader) (PatchChunk, error) {
	nameLen := r.U32BE()
	name := string(r.Bytes(int(nameLen)))
	if err := r.Err(); err != nil {
		return nil, err
	}
	return &AddDirectoryChunk{DirName: name}, nil
}

func (c *AddDirectoryChunk) ChunkType() string { return ChunkTypeAddDirectory }

func (c *AddDirectoryChunk) Apply(session *InstallSession) error {
	path, err := session.ResolvePath(c.DirName)
	if err != nil {
		return &ChunkApplyError{Tag: c.ChunkType(), Path: c.DirName, Err: err}
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return &ChunkApplyError{Tag: c.ChunkType(), Path: path, Err: err}
	}
	PushLogDebug(nil, fmt.Sprintf("Created directory: %s", c.DirName))
	return nil
}

// DeleteDirectoryChunk removes a directory relative to the installation
// root. An already-absent directory is not an error; a non-empty one is.
type DeleteDirectoryChunk struct {
	DirName string
}

func decodeDeleteDirectoryChunk(r *binaryReader) (PatchChunk, error) {
	nameLen := r.U32BE()
	name := string(r.Bytes(int(nameLen)))
	if err := r.Err(); err != nil {
		return nil, err
	}
	return &DeleteDirectoryChunk{DirName: name}, nil
}

func (c *DeleteDirectoryChunk) ChunkType() string { return ChunkTypeDeleteDirectory }

func (c *DeleteDirectoryChunk) Apply(session *InstallSession) error {
	path, err := session.ResolvePath(c.DirName)
	if err != nil {
		return &ChunkApplyError{Tag: c.ChunkType(), Path: c.DirName, Err: err}
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return &ChunkApplyError{Tag: c.ChunkType(), Path: path, Err: err}
	}
	PushLogDebug(nil, fmt.Sprintf("Deleted directory: %s", c.DirName))
	return nil
}
