package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
)

var (
	initLogger sync.Once
	jsonLog    *log.Logger
)

// Logger returns the process-wide JSON-line logger. Lines go to stdout so the
// platform's log collector picks them up without extra configuration.
func Logger() *log.Logger {
	initLogger.Do(func() {
		jsonLog = log.New(os.Stdout, "", 0)
	})
	return jsonLog
}

// LogRequest marshals the given fields as one JSON log line. Marshal failures
// are reported on the same stream instead of being dropped silently.
func LogRequest(fields map[string]any) {
	line, err := json.Marshal(fields)
	if err != nil {
		Logger().Printf(`{"level":"error","msg":"log marshal failed","error":%q}`, err.Error())
		return
	}
	Logger().Println(string(line))
}
