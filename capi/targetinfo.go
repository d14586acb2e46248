package capi

import (
	"github.com/mxl-media/fabrics/internal/targetinfo"
)

// TargetInfoHandle is an opaque reference to a targetinfo.TargetInfo.
type TargetInfoHandle uint64

var targetInfos = newRegistry()

// TargetInfoToString / TargetInfoFromString round-trip a TargetInfoHandle
// through the JSON text format of spec §4.7, so it can cross a process
// boundary (an NMOS SDP attribute, a config file, a control-plane message).
func TargetInfoToString(h TargetInfoHandle) (string, Status, error) {
	info, err := lookupTargetInfo("TargetInfoToString", h)
	if err != nil {
		return "", statusOf(err), err
	}
	s, err := targetinfo.ToString(info)
	if err != nil {
		return "", statusOf(err), err
	}
	return s, StatusOK, nil
}

func TargetInfoFromString(text string) (TargetInfoHandle, Status, error) {
	info, err := targetinfo.FromString(text)
	if err != nil {
		return 0, statusOf(err), err
	}
	return TargetInfoHandle(targetInfos.put(info)), StatusOK, nil
}

// TargetInfoFree releases a TargetInfoHandle.
func TargetInfoFree(h TargetInfoHandle) Status {
	if _, ok := targetInfos.get(uint64(h)); !ok {
		return StatusInvalidArg
	}
	targetInfos.delete(uint64(h))
	return StatusOK
}

func lookupTargetInfo(op string, h TargetInfoHandle) (targetinfo.TargetInfo, error) {
	v, ok := targetInfos.get(uint64(h))
	if !ok {
		return targetinfo.TargetInfo{}, invalidHandle(op)
	}
	return v.(targetinfo.TargetInfo), nil
}
