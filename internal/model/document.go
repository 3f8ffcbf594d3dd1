package model

type Document struct {
	ID       int64  `json:"id"`
	Filename string `json:"filename"`
	Content  string `json:"content"`
	Filepath string `json:"filepath"`
	Checksum string `json:"checksum"`
	Ctime    int64  `json:"ctime"`
	Mtime    int64  `json:"mtime"`
}
