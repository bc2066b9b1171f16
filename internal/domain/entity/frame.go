package entity

import "image"

// FramePair пара кадров, между которыми оценивается движение.
type FramePair struct {
	Reference      *image.Gray
	Current        *image.Gray
	Raw            *image.Gray // текущий кадр до обратного преобразования, nil если Current не преобразован
	ReferenceIndex int
	CurrentIndex   int
	Prior          Transform    // накопленное преобразование до этого кадра
	Warping        WarpingGroup // допустимое семейство преобразований
}
