package presenter

// Viewer is the user a presentation is rendered for. The zero value is an
// anonymous viewer.
type Viewer struct {
	UserID string
}

func (v Viewer) Authenticated() bool {
	return v.UserID != ""
}
