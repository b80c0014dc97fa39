package hlk

import (
	"fmt"
	"time"
)

// AdvertManufacturerIDs 广播中携带固件信息的厂商 ID，按优先级排列
var AdvertManufacturerIDs = []uint16{256, 1494}

const minAdvertLen = 13

// AdvertFirmware 从广播厂商数据解析的固件信息
type AdvertFirmware struct {
	Version   string    `json:"firmware_version"`
	BuildDate time.Time `json:"firmware_build_date"`
}

func bcd(b byte) int { return int(b>>4)*10 + int(b&0x0F) }

// ParseAdvertFirmware 厂商数据：minor(BCD) major hour day month year minute ...
func ParseAdvertFirmware(mfr map[uint16][]byte) (AdvertFirmware, bool) {
	var data []byte
	for _, id := range AdvertManufacturerIDs {
		if d, ok := mfr[id]; ok {
			data = d
			break
		}
	}
	if len(data) < minAdvertLen {
		return AdvertFirmware{}, false
	}
	minor := fmt.Sprintf("%d%d", data[0]>>4, data[0]&0x0F)
	major := int(data[1])
	hour, day, month := bcd(data[2]), bcd(data[3]), bcd(data[4])
	year, minute := bcd(data[5]), bcd(data[6])
	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 {
		return AdvertFirmware{}, false
	}
	return AdvertFirmware{
		Version:   fmt.Sprintf("%d.%s.%02d%02d%02d%02d", major, minor, year, month, day, hour),
		BuildDate: time.Date(2000+year, time.Month(month), day, hour, minute, 0, 0, time.UTC),
	}, true
}

// Fields 转换为设备快照字段
func (f AdvertFirmware) Fields() map[string]any {
	return map[string]any{
		"firmware_version":    f.Version,
		"firmware_build_date": f.BuildDate.Format(time.RFC3339),
	}
}
