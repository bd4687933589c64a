package models

type PermissionLevel int

const (
	LevelRequester PermissionLevel = 1
	LevelApprover  PermissionLevel = 2
	LevelConfirmer PermissionLevel = 3
	LevelAdmin     PermissionLevel = 5
)

func (l PermissionLevel) AtLeast(min PermissionLevel) bool {
	return l >= min
}

// Actor is the authenticated caller of a lifecycle operation.
type Actor struct {
	UserID int64
	Name   string
	Level  PermissionLevel
}

type User struct {
	ID              int64
	Username        string
	FullName        string
	PermissionLevel PermissionLevel
	Company         string
	IsActive        bool
}

func (u *User) Actor() Actor {
	name := u.FullName
	if name == "" {
		name = u.Username
	}
	return Actor{UserID: u.ID, Name: name, Level: u.PermissionLevel}
}
