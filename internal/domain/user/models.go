package user

import "time"

const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

// Record is one entry in the registeredUsers map. The JSON field names
// match the stored schema and must not change.
type Record struct {
	Username  string    `json:"username"`
	Name      string    `json:"name"`
	Password  string    `json:"password"` // bcrypt hash
	Role      string    `json:"role"`
	TeacherID string    `json:"teacherId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Teacher is an admin offered in the signup teacher picker.
type Teacher struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

// DemoAccount is one of the two built-in identities. Their credentials
// are fixed and checked before the registry is consulted.
type DemoAccount struct {
	ID       string
	Username string
	Password string
	Name     string
	Role     string
}

var (
	DemoStudent = DemoAccount{
		ID:       "student1",
		Username: "student",
		Password: "demo123",
		Name:     "Demo Student",
		Role:     RoleStudent,
	}
	DemoAdmin = DemoAccount{
		ID:       "admin1",
		Username: "admin",
		Password: "admin123",
		Name:     "Demo Admin",
		Role:     RoleAdmin,
	}
)

// DemoFor returns the demo account for a role, if any.
func DemoFor(role string) (DemoAccount, bool) {
	switch role {
	case RoleStudent:
		return DemoStudent, true
	case RoleAdmin:
		return DemoAdmin, true
	}
	return DemoAccount{}, false
}

// ID derives the stored user id for a registered username, e.g.
// "student_alice" or "admin_jones".
func ID(role, username string) string {
	return role + "_" + username
}
