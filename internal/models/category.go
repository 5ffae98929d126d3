package models

// Category is a forum section backed by a chain tag.
type Category struct {
	Tag         string
	Name        string
	Description string
}
