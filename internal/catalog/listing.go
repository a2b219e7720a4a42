package catalog

import "sort"

// Listing categories. Media categories match the file's type
// classification; "my-files" and "trash" are lifecycle projections.
const (
	CategoryMyFiles = "my-files"
	CategoryTrash   = "trash"
)

// Sort orders accepted by ListQuery.
const (
	SortNameAsc  = "name-asc"
	SortNameDesc = "name-desc"
	SortTimeAsc  = "time-asc"
	SortTimeDesc = "time-desc"
	SortSizeAsc  = "size-asc"
	SortSizeDesc = "size-desc"
)

// ListQuery selects and orders a read-side projection of a user's records.
type ListQuery struct {
	Path     string // logical directory, used by the my-files category
	Category string // my-files, trash, or a type classification
	Sort     string
}

// Project filters and sorts records per the query. It is a pure function
// over the status machine plus logical path and type classification; no
// separate listing state is persisted.
func Project(files []File, q ListQuery) []File {
	out := make([]File, 0, len(files))
	for _, f := range files {
		if matches(f, q) {
			out = append(out, f)
		}
	}
	sortFiles(out, q.Sort)
	return out
}

func matches(f File, q ListQuery) bool {
	// Folders only appear in the my-files view.
	if f.IsFolder() {
		return q.Category == CategoryMyFiles && f.RelativePath == q.Path && f.Status == StatusActive
	}

	switch q.Category {
	case CategoryMyFiles:
		return f.RelativePath == q.Path && f.Status == StatusActive
	case CategoryTrash:
		return f.Status == StatusDeleted
	default:
		// Media buckets span the whole tree but exclude trashed records.
		return f.Status == StatusActive && TypeOf(f.Name) == q.Category
	}
}

func sortFiles(files []File, order string) {
	switch order {
	case SortNameAsc:
		sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	case SortNameDesc:
		sort.Slice(files, func(i, j int) bool { return files[i].Name > files[j].Name })
	case SortTimeAsc:
		sort.Slice(files, func(i, j int) bool { return files[i].CreatedAt.Before(files[j].CreatedAt) })
	case SortSizeAsc:
		sort.Slice(files, func(i, j int) bool { return files[i].Size < files[j].Size })
	case SortSizeDesc:
		sort.Slice(files, func(i, j int) bool { return files[i].Size > files[j].Size })
	case SortTimeDesc:
		fallthrough
	default:
		sort.Slice(files, func(i, j int) bool { return files[i].CreatedAt.After(files[j].CreatedAt) })
	}
}
