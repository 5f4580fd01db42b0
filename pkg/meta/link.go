package meta

// LinkInfo is a declared relationship from a described file to another
// file. Path is a glob pattern resolved against sibling paths by the
// cache builder, not by the resolution engine. Metadata starts from an
// empty map; links never inherit the owning file's metadata.
type LinkInfo struct {
	Type     string `json:"type"`
	Path     string `json:"path"`
	Metadata *Map   `json:"metadata"`
}
