package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/hyperjump/miwake/internal/models"
)

const (
	keypointSep = ";"
	fieldSep    = ","
	fieldCount  = 7
)

// encodeKeypointsText joins keypoints as x,y,size,angle,response,octave,class_id records separated by ';'.
func encodeKeypointsText(kps []models.Keypoint) string {
	var sb strings.Builder
	for i, kp := range kps {
		if i > 0 {
			sb.WriteString(keypointSep)
		}
		sb.WriteString(formatFloat(kp.X))
		sb.WriteString(fieldSep)
		sb.WriteString(formatFloat(kp.Y))
		sb.WriteString(fieldSep)
		sb.WriteString(formatFloat(kp.Size))
		sb.WriteString(fieldSep)
		sb.WriteString(formatFloat(kp.Angle))
		sb.WriteString(fieldSep)
		sb.WriteString(formatFloat(kp.Response))
		sb.WriteString(fieldSep)
		sb.WriteString(strconv.Itoa(kp.Octave))
		sb.WriteString(fieldSep)
		sb.WriteString(strconv.Itoa(kp.ClassID))
	}
	return sb.String()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// decodeKeypointsText parses the text encoding. It returns one slot per raw
// record; a slot is nil when that record is malformed.
func decodeKeypointsText(s string) []*models.Keypoint {
	if s == "" {
		return nil
	}
	records := strings.Split(s, keypointSep)
	out := make([]*models.Keypoint, len(records))
	for i, rec := range records {
		kp, err := parseKeypoint(rec)
		if err != nil {
			continue
		}
		out[i] = kp
	}
	return out
}

func parseKeypoint(rec string) (*models.Keypoint, error) {
	fields := strings.Split(rec, fieldSep)
	if len(fields) != fieldCount {
		return nil, fmt.Errorf("keypoint has %d fields, want %d", len(fields), fieldCount)
	}
	var f [5]float64
	for i := range f {
		v, err := strconv.ParseFloat(strings.TrimSpace(fields[i]), 64)
		if err != nil {
			return nil, fmt.Errorf("keypoint field %d: %w", i, err)
		}
		f[i] = v
	}
	octave, err := parseIntField(fields[5])
	if err != nil {
		return nil, fmt.Errorf("keypoint octave: %w", err)
	}
	classID, err := parseIntField(fields[6])
	if err != nil {
		return nil, fmt.Errorf("keypoint class id: %w", err)
	}
	return &models.Keypoint{X: f[0], Y: f[1], Size: f[2], Angle: f[3], Response: f[4], Octave: octave, ClassID: classID}, nil
}

// parseIntField accepts integers written either plainly or as floats ("3.0").
func parseIntField(s string) (int, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if v != math.Trunc(v) {
		return 0, fmt.Errorf("%q is not an integer", s)
	}
	return int(v), nil
}

// alignFeatures drops malformed keypoints together with their descriptor
// rows so that keypoint i still corresponds to descriptor row i.
func alignFeatures(slots []*models.Keypoint, raw []byte) ([]models.Keypoint, *models.Descriptors, int, error) {
	if len(slots) == 0 {
		if len(raw) != 0 {
			return nil, nil, 0, fmt.Errorf("%d descriptor bytes without keypoints", len(raw))
		}
		return nil, &models.Descriptors{}, 0, nil
	}
	if len(raw)%len(slots) != 0 {
		return nil, nil, 0, fmt.Errorf("descriptor length %d is not a multiple of %d keypoints", len(raw), len(slots))
	}
	cols := len(raw) / len(slots)
	kps := make([]models.Keypoint, 0, len(slots))
	data := make([]byte, 0, len(raw))
	skipped := 0
	for i, kp := range slots {
		if kp == nil {
			skipped++
			continue
		}
		kps = append(kps, *kp)
		data = append(data, raw[i*cols:(i+1)*cols]...)
	}
	desc, err := models.NewDescriptors(len(kps), cols, data)
	if err != nil {
		return nil, nil, 0, err
	}
	return kps, desc, skipped, nil
}

// keypointRecordSize is the fixed binary layout: five float64 then two int32.
const keypointRecordSize = 5*8 + 2*4

// encodeKeypointsBinary writes keypoints as fixed-layout little-endian records.
func encodeKeypointsBinary(kps []models.Keypoint) []byte {
	buf := make([]byte, len(kps)*keypointRecordSize)
	for i, kp := range kps {
		b := buf[i*keypointRecordSize:]
		binary.LittleEndian.PutUint64(b[0:], math.Float64bits(kp.X))
		binary.LittleEndian.PutUint64(b[8:], math.Float64bits(kp.Y))
		binary.LittleEndian.PutUint64(b[16:], math.Float64bits(kp.Size))
		binary.LittleEndian.PutUint64(b[24:], math.Float64bits(kp.Angle))
		binary.LittleEndian.PutUint64(b[32:], math.Float64bits(kp.Response))
		binary.LittleEndian.PutUint32(b[40:], uint32(int32(kp.Octave)))
		binary.LittleEndian.PutUint32(b[44:], uint32(int32(kp.ClassID)))
	}
	return buf
}

// decodeKeypointsBinary parses records written by encodeKeypointsBinary.
func decodeKeypointsBinary(data []byte) ([]models.Keypoint, error) {
	if len(data)%keypointRecordSize != 0 {
		return nil, fmt.Errorf("keypoint data length %d is not a multiple of %d", len(data), keypointRecordSize)
	}
	r := bytes.NewReader(data)
	kps := make([]models.Keypoint, len(data)/keypointRecordSize)
	for i := range kps {
		var rec struct {
			X, Y, Size, Angle, Response float64
			Octave, ClassID             int32
		}
		if err := binary.Read(r, binary.LittleEndian, &rec); err != nil {
			return nil, fmt.Errorf("read keypoint %d: %w", i, err)
		}
		kps[i] = models.Keypoint{
			X: rec.X, Y: rec.Y, Size: rec.Size, Angle: rec.Angle, Response: rec.Response,
			Octave: int(rec.Octave), ClassID: int(rec.ClassID),
		}
	}
	return kps, nil
}
