package root

import (
	"github.com/enrolly/enrolly-backend/apps/cli/cmd/bootstrap"
	"github.com/enrolly/enrolly-backend/apps/cli/cmd/seed"
)

func init() {
	Root().AddCommand(bootstrap.Command())
	Root().AddCommand(seed.Command())
}
