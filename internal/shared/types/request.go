package types

// CreateWorkerRequest is the body of POST /workers
type CreateWorkerRequest struct {
	ID        ContextID `json:"id" binding:"required"`
	Kind      string    `json:"kind"`
	Source    string    `json:"source"`
	Inline    string    `json:"inline"`
	Command   string    `json:"command"`
	Args      []string  `json:"args"`
	ParentID  ContextID `json:"parent_id"`
	Essential bool      `json:"essential"`
	Title     string    `json:"title"`
	Bounds    *Bounds   `json:"bounds"`
}

// BoundsRequest is the body of POST /workers/:id/bounds
type BoundsRequest struct {
	X         int  `json:"x"`
	Y         int  `json:"y"`
	Width     int  `json:"width" binding:"gt=0"`
	Height    int  `json:"height" binding:"gt=0"`
	Maximized bool `json:"maximized"`
}

// Bounds converts the request to window geometry
func (r BoundsRequest) Bounds() Bounds {
	return Bounds{X: r.X, Y: r.Y, Width: r.Width, Height: r.Height, Maximized: r.Maximized}
}

// WorkerRequest is the body of POST /workers/:id/request
type WorkerRequest struct {
	Channel   string  `json:"channel" binding:"required"`
	Payload   Payload `json:"payload"`
	TimeoutMS int64   `json:"timeout_ms" binding:"gte=0"`
}

// SendRequest is the body of POST /channels/:id/send. An empty To
// broadcasts.
type SendRequest struct {
	To      ContextID `json:"to"`
	Payload Payload   `json:"payload"`
}
