package aggregate_test

import (
	"os"
	"testing"

	"github.com/okian/affinity/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}
