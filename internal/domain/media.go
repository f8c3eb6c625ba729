package domain

type MediaEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Size int64  `json:"size"`
	Ext  string `json:"ext"`
}
