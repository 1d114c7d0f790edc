package configloader

import (
	"encoding/json"
	"fmt"
	"io"
)

// PrintConfig выводит конфиг в читаемом виде.
func PrintConfig(w io.Writer, v interface{}) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(w, "Loaded configuration:\n", string(b))
}
