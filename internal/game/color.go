package game

// Color identifies a side of the board.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Opposite returns the other side.
func (c Color) Opposite() Color {
	if c == White {
		return Black
	}
	return White
}

// Valid reports whether c is one of the two playable colors.
func (c Color) Valid() bool {
	return c == White || c == Black
}

// Active identifies whose clock is running. The value "none" means the
// game has not received its first move yet.
type Active string

const (
	ActiveWhite Active = "w"
	ActiveBlack Active = "b"
	ActiveNone  Active = "none"
)

// Opposite returns the other running side. ActiveNone maps to itself.
func (a Active) Opposite() Active {
	switch a {
	case ActiveWhite:
		return ActiveBlack
	case ActiveBlack:
		return ActiveWhite
	default:
		return ActiveNone
	}
}

// Color converts the active marker to a player color. ActiveNone yields
// the empty Color.
func (a Active) Color() Color {
	switch a {
	case ActiveWhite:
		return White
	case ActiveBlack:
		return Black
	default:
		return ""
	}
}

// Active converts a player color to its clock marker.
func (c Color) Active() Active {
	switch c {
	case White:
		return ActiveWhite
	case Black:
		return ActiveBlack
	default:
		return ActiveNone
	}
}
