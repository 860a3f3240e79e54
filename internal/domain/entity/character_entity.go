package entity

// Character is a game character (players row) owned by exactly one account.
// The portal only reads characters.
type Character struct {
	ID        int64
	AccountID int64
	Name      string
	Level     int
	Vocation  int
	Sex       int
	LookType  int
	LastLogin int64
}

var vocationNames = map[int]string{
	0: "None",
	1: "Sorcerer",
	2: "Druid",
	3: "Paladin",
	4: "Knight",
	5: "Master Sorcerer",
	6: "Elder Druid",
	7: "Royal Paladin",
	8: "Elite Knight",
}

// VocationName maps the vocation id to its display name.
func (c Character) VocationName() string {
	if n, ok := vocationNames[c.Vocation]; ok {
		return n
	}
	return "Unknown"
}
