package dto

// DrainRequest bounds a manual drain pass. Zero means "use the configured
// batch size".
type DrainRequest struct {
	MaxItems int `json:"maxItems" binding:"omitempty,min=1,max=500"`
}
