package types

// StagedFile is one uploaded file held in a session's staging directory.
type StagedFile struct {
	// DisplayName is the file name as the user sent it.
	DisplayName string `msgpack:"display_name" json:"display_name"`
	// Name is the sanitized, collision-free name inside the staging directory.
	// It is also the entry name used inside the archive.
	Name string `msgpack:"name" json:"name"`
	// Path is the absolute staging path.
	Path string `msgpack:"path" json:"path"`
	// Size is the byte size on disk.
	Size int64 `msgpack:"size" json:"size"`
}

// Artifact is a fully written archive ready for delivery.
type Artifact struct {
	Path   string
	Size   int64
	Format Format
}

// Part is one fragment of an oversized artifact.
type Part struct {
	// Seq is the 1-based sequence number.
	Seq int
	// Total is the number of parts the source produces.
	Total int
	// Path is the committed part file.
	Path string
	// Size is the byte length of the part.
	Size int64
}
