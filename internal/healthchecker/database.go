package healthchecker

import (
	"github.com/nestline/callsync/internal/database"
)

func CheckDB() error {
	_, err := database.NewDatabase()
	return err
}
