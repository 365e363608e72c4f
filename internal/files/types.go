package files

import (
	"path/filepath"
	"strings"
)

// FolderTypeCode is the four-character type reported for folders.
const FolderTypeCode = "fldr"

// DefaultTypeCode and DefaultCreatorCode are reported for files whose
// extension is not in the table.
const (
	DefaultTypeCode    = "????"
	DefaultCreatorCode = "????"
)

type typeCreator struct {
	typeCode string
	creator  string
}

// typesByExtension maps lowercase extensions to classic Mac type and
// creator codes. Clients use these to pick icons and viewers.
var typesByExtension = map[string]typeCreator{
	".txt":  {"TEXT", "ttxt"},
	".text": {"TEXT", "ttxt"},
	".html": {"TEXT", "ttxt"},
	".jpg":  {"JPEG", "ogle"},
	".jpeg": {"JPEG", "ogle"},
	".gif":  {"GIFf", "ogle"},
	".png":  {"PNGf", "ogle"},
	".tif":  {"TIFF", "ogle"},
	".tiff": {"TIFF", "ogle"},
	".pict": {"PICT", "ogle"},
	".sit":  {"SIT!", "SIT!"},
	".sitx": {"SITX", "SIT!"},
	".zip":  {"ZIP ", "SITx"},
	".gz":   {"Gzip", "SITx"},
	".tar":  {"TARF", "SITx"},
	".hqx":  {"TEXT", "SITx"},
	".bin":  {"BINA", "SITx"},
	".img":  {"rohd", "ddsk"},
	".dmg":  {"rohd", "ddsk"},
	".mov":  {"MooV", "TVOD"},
	".mp3":  {"MPG3", "TVOD"},
	".mpg":  {"MPEG", "TVOD"},
	".mpeg": {"MPEG", "TVOD"},
	".wav":  {"WAVE", "TVOD"},
	".aif":  {"AIFF", "TVOD"},
	".aiff": {"AIFF", "TVOD"},
	".pdf":  {"PDF ", "CARO"},
}

// TypeForName returns the type and creator codes for a file name.
func TypeForName(name string) (typeCode, creator string) {
	ext := strings.ToLower(filepath.Ext(name))
	if tc, ok := typesByExtension[ext]; ok {
		return tc.typeCode, tc.creator
	}
	return DefaultTypeCode, DefaultCreatorCode
}
