package ai

import "strings"

// Hints carry context from the file's metadata and location that helps the
// model write a more specific caption. Every field is optional.
type Hints struct {
	Persons  []string // Names of people tagged in the photo
	Folder   string   // Name of the containing folder, often a place or event
	Location string   // "lat,lon" from GPS tags
}

// Empty reports whether no hint is set.
func (h Hints) Empty() bool {
	return len(h.Persons) == 0 && h.Folder == "" && h.Location == ""
}

// PersonList joins the person names for use in a prompt.
func (h Hints) PersonList() string {
	return strings.Join(h.Persons, ", ")
}

// DescribeRequest is one image description call.
type DescribeRequest struct {
	Path  string // Source file, used for logging only
	Image []byte // JPEG bytes already resized for the model
	Hints Hints
}
