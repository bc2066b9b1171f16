package entity

import (
	"fmt"
	"strings"
)

// Mode режим стабилизации: какие кадры сравниваются и как обновляется
// накопленное преобразование.
type Mode int

const (
	Direct   Mode = iota // текущий кадр сравнивается с опорным
	TrackRef             // текущий кадр сравнивается с предыдущим
	WarpBack             // текущий кадр возвращается к опорному и сравнивается с ним
)

var modeNames = map[Mode]string{
	Direct:   "direct",
	TrackRef: "track_ref",
	WarpBack: "warp_back",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode разбирает имя режима без учёта регистра.
func ParseMode(s string) (Mode, error) {
	key := normalizeName(s)
	for m, name := range modeNames {
		if name == key {
			return m, nil
		}
	}
	return Direct, fmt.Errorf("unknown stabilization mode %q", s)
}

// WarpingGroup семейство преобразований, которое разрешено подбирать.
type WarpingGroup int

const (
	Homography    WarpingGroup = iota // произвольная гомография
	RotHomography                     // гомографии, порождённые поворотом камеры
	Affine                            // аффинные преобразования
	Rigid                             // поворот и сдвиг
	Translation                       // только сдвиг
)

var warpingNames = map[WarpingGroup]string{
	Homography:    "homography",
	RotHomography: "rot_homography",
	Affine:        "affine",
	Rigid:         "rigid",
	Translation:   "translation",
}

func (g WarpingGroup) String() string {
	if name, ok := warpingNames[g]; ok {
		return name
	}
	return fmt.Sprintf("warping(%d)", int(g))
}

// ParseWarpingGroup разбирает имя группы без учёта регистра.
func ParseWarpingGroup(s string) (WarpingGroup, error) {
	key := normalizeName(s)
	for g, name := range warpingNames {
		if name == key {
			return g, nil
		}
	}
	return Homography, fmt.Errorf("unknown warping group %q", s)
}

func normalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.ReplaceAll(s, "-", "_")
}
