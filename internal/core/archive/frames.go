package archive

import (
	"bytes"
	"image"
	"image/jpeg"
	_ "image/png" // 允许源输出 PNG 帧
)

// compressFrame 统一重编码为 JPEG，限制落盘体积
// 压缩没有收益时保留原始字节
func compressFrame(data []byte, quality int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	if buf.Len() >= len(data) {
		return data, nil
	}
	return buf.Bytes(), nil
}
