//go:build llama

package llama

// libllama.so and libggml*.so are expected next to the binary (./bin).
/*
#cgo LDFLAGS: -Wl,-rpath,'$ORIGIN' -L${SRCDIR}/../../../bin -lllama
*/
import "C"
