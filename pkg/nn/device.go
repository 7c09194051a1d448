package nn

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	pkgerrors "github.com/absmach/cohort/pkg/errors"
)

const (
	CPU  = "cpu"
	CUDA = "cuda"
)

// Device is a placement such as "cpu", "cuda" or "cuda:1". Index is -1
// when no ordinal is given.
type Device struct {
	Type  string
	Index int
}

func ParseDevice(s string) (Device, error) {
	if s == "" {
		return Device{Type: CPU, Index: -1}, nil
	}
	kind, idx, found := strings.Cut(s, ":")
	if kind != CPU && kind != CUDA {
		return Device{}, fmt.Errorf("%w: unknown device %q", pkgerrors.ErrInvalidInput, s)
	}
	if !found {
		return Device{Type: kind, Index: -1}, nil
	}
	n, err := strconv.Atoi(idx)
	if err != nil || n < 0 {
		return Device{}, fmt.Errorf("%w: bad device ordinal in %q", pkgerrors.ErrInvalidInput, s)
	}

	return Device{Type: kind, Index: n}, nil
}

func (d Device) String() string {
	if d.Index < 0 {
		return d.Type
	}

	return fmt.Sprintf("%s:%d", d.Type, d.Index)
}

func (d Device) IsCUDA() bool { return d.Type == CUDA }

// CUDADevice returns the device string pinned to the given local rank.
func CUDADevice(localRank int) string {
	return Device{Type: CUDA, Index: localRank}.String()
}

// CUDAAvailable reports whether the host exposes at least one CUDA device.
func CUDAAvailable() bool {
	if v, ok := os.LookupEnv("CUDA_VISIBLE_DEVICES"); ok {
		v = strings.TrimSpace(v)

		return v != "" && v != "-1" && v != "NoDevFiles"
	}
	_, err := os.Stat("/dev/nvidia0")

	return err == nil
}
