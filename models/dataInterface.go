package models

type Identifier interface {
	GetId() int
}

func (l Location) GetId() int {
	return l.ID
}

func (c PosConnection) GetId() int {
	return int(c.ID)
}

func (m PosMapping) GetId() int {
	return int(m.ID)
}
