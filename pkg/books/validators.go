package books

type ListBooksQuery struct {
	Limit        int  `query:"limit" json:"limit,omitempty" default:"50" validate:"min=1,max=200"`
	Offset       int  `query:"offset" json:"offset,omitempty" validate:"min=0"`
	MissingFiles bool `query:"missing_files" json:"missing_files,omitempty"`
}
