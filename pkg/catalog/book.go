package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// UnknownAuthor is shown when a book carries no usable author.
const UnknownAuthor = "Unknown Author"

// Book is a catalog entry as served by the origin.
type Book struct {
	ID          string `json:"_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Author      Author `json:"author"`
	CoverImage  string `json:"coverImage"`
	File        string `json:"file"`
}

// Author accepts both shapes the origin uses: a plain string or an object
// with a name.
type Author struct {
	ID   string `json:"_id,omitempty"`
	Name string `json:"name"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Author) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = Author{}
		return nil
	}

	if data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return fmt.Errorf("author name: %w", err)
		}
		*a = Author{Name: name}
		return nil
	}

	type plain Author
	var obj plain
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("author object: %w", err)
	}
	*a = Author(obj)
	return nil
}

// String returns the display name.
func (a Author) String() string {
	if a.Name == "" {
		return UnknownAuthor
	}
	return a.Name
}
