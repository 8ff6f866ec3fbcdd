package mps

// CRCSeed 请求编码与响应校验统一使用的 CRC 初始值
const CRCSeed uint16 = 0xFFFF

const crcPoly uint16 = 0x1021

// crcTable CRC-16/CCITT 查表（MSB 优先）
var crcTable = buildCRCTable()

func buildCRCTable() [256]uint16 {
	var t [256]uint16
	for i := range t {
		c := uint16(i) << 8
		for j := 0; j < 8; j++ {
			if c&0x8000 != 0 {
				c = c<<1 ^ crcPoly
			} else {
				c <<= 1
			}
		}
		t[i] = c
	}
	return t
}

// CRC16 以 seed 为初值计算 data 的 CRC-16/CCITT
func CRC16(seed uint16, data []byte) uint16 {
	crc := seed
	for _, b := range data {
		crc = crc<<8 ^ crcTable[byte(crc>>8)^b]
	}
	return crc
}
