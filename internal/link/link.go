// Package link 雷达模块的传输链路抽象（BLE GATT 或串口）
package link

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// GATT 特征值：fff1 通知（设备→主机），fff2 写入（主机→设备）
var (
	NotifyCharacteristic = uuid.MustParse("0000fff1-0000-1000-8000-00805f9b34fb")
	WriteCharacteristic  = uuid.MustParse("0000fff2-0000-1000-8000-00805f9b34fb")
)

var (
	ErrClosed         = errors.New("link: connection closed")
	ErrUnknownChar    = errors.New("link: unknown characteristic")
	ErrInvalidAddress = errors.New("link: invalid address")
)

// Link 建立到设备的连接
//
// onClose 在连接结束时调用且只调用一次；主动 Disconnect 时 err 为 nil。
type Link interface {
	Connect(ctx context.Context, address string, onClose func(err error)) (Conn, error)
}

// Conn 已建立的连接
type Conn interface {
	Write(ctx context.Context, char uuid.UUID, data []byte, withResponse bool) error
	Subscribe(ctx context.Context, char uuid.UUID, fn func([]byte)) error
	Disconnect(ctx context.Context) error
}

// ManufacturerDataReader 可读取广播厂商数据的连接
type ManufacturerDataReader interface {
	ManufacturerData(ctx context.Context) (map[uint16][]byte, error)
}

// ValidateAddress 校验 XX:XX:XX:XX:XX:XX 格式的蓝牙地址
func ValidateAddress(address string) error {
	parts := strings.Split(address, ":")
	if len(parts) != 6 {
		return fmt.Errorf("%w: %q (expected XX:XX:XX:XX:XX:XX)", ErrInvalidAddress, address)
	}
	for _, part := range parts {
		if len(part) != 2 {
			return fmt.Errorf("%w: %q (expected XX:XX:XX:XX:XX:XX)", ErrInvalidAddress, address)
		}
		for _, c := range part {
			if !((c >= '0' && c <= '9') || (c >= 'A' && c <= 'F') || (c >= 'a' && c <= 'f')) {
				return fmt.Errorf("%w: %q (non-hex character)", ErrInvalidAddress, address)
			}
		}
	}
	return nil
}

// NormalizeAddress 统一为大写
func NormalizeAddress(address string) string {
	return strings.ToUpper(strings.TrimSpace(address))
}
