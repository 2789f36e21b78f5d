package pgconn

// Classic Unix crypt(3), required by the long-deprecated "crypt"
// authentication method. The server sends a two character salt and expects
// the traditional 13 character DES-based hash back. crypto/des cannot be
// used because crypt perturbs the DES expansion function with the salt, so
// the cipher is carried here in full. Speed is irrelevant: this runs once
// per connection attempt against an ancient server.

var cryptIP = [64]byte{
	58, 50, 42, 34, 26, 18, 10, 2,
	60, 52, 44, 36, 28, 20, 12, 4,
	62, 54, 46, 38, 30, 22, 14, 6,
	64, 56, 48, 40, 32, 24, 16, 8,
	57, 49, 41, 33, 25, 17, 9, 1,
	59, 51, 43, 35, 27, 19, 11, 3,
	61, 53, 45, 37, 29, 21, 13, 5,
	63, 55, 47, 39, 31, 23, 15, 7,
}

var cryptFP = [64]byte{
	40, 8, 48, 16, 56, 24, 64, 32,
	39, 7, 47, 15, 55, 23, 63, 31,
	38, 6, 46, 14, 54, 22, 62, 30,
	37, 5, 45, 13, 53, 21, 61, 29,
	36, 4, 44, 12, 52, 20, 60, 28,
	35, 3, 43, 11, 51, 19, 59, 27,
	34, 2, 42, 10, 50, 18, 58, 26,
	33, 1, 41, 9, 49, 17, 57, 25,
}

var cryptPC1 = [56]byte{
	57, 49, 41, 33, 25, 17, 9,
	1, 58, 50, 42, 34, 26, 18,
	10, 2, 59, 51, 43, 35, 27,
	19, 11, 3, 60, 52, 44, 36,
	63, 55, 47, 39, 31, 23, 15,
	7, 62, 54, 46, 38, 30, 22,
	14, 6, 61, 53, 45, 37, 29,
	21, 13, 5, 28, 20, 12, 4,
}

var cryptPC2 = [48]byte{
	14, 17, 11, 24, 1, 5,
	3, 28, 15, 6, 21, 10,
	23, 19, 12, 4, 26, 8,
	16, 7, 27, 20, 13, 2,
	41, 52, 31, 37, 47, 55,
	30, 40, 51, 45, 33, 48,
	44, 49, 39, 56, 34, 53,
	46, 42, 50, 36, 29, 32,
}

var cryptShifts = [16]byte{1, 1, 2, 2, 2, 2, 2, 2, 1, 2, 2, 2, 2, 2, 2, 1}

var cryptE = [48]byte{
	32, 1, 2, 3, 4, 5,
	4, 5, 6, 7, 8, 9,
	8, 9, 10, 11, 12, 13,
	12, 13, 14, 15, 16, 17,
	16, 17, 18, 19, 20, 21,
	20, 21, 22, 23, 24, 25,
	24, 25, 26, 27, 28, 29,
	28, 29, 30, 31, 32, 1,
}

var cryptP = [32]byte{
	16, 7, 20, 21,
	29, 12, 28, 17,
	1, 15, 23, 26,
	5, 18, 31, 10,
	2, 8, 24, 14,
	32, 27, 3, 9,
	19, 13, 30, 6,
	22, 11, 4, 25,
}

var cryptS = [8][4][16]byte{
	{
		{14, 4, 13, 1, 2, 15, 11, 8, 3, 10, 6, 12, 5, 9, 0, 7},
		{0, 15, 7, 4, 14, 2, 13, 1, 10, 6, 12, 11, 9, 5, 3, 8},
		{4, 1, 14, 8, 13, 6, 2, 11, 15, 12, 9, 7, 3, 10, 5, 0},
		{15, 12, 8, 2, 4, 9, 1, 7, 5, 11, 3, 14, 10, 0, 6, 13},
	},
	{
		{15, 1, 8, 14, 6, 11, 3, 4, 9, 7, 2, 13, 12, 0, 5, 10},
		{3, 13, 4, 7, 15, 2, 8, 14, 12, 0, 1, 10, 6, 9, 11, 5},
		{0, 14, 7, 11, 10, 4, 13, 1, 5, 8, 12, 6, 9, 3, 2, 15},
		{13, 8, 10, 1, 3, 15, 4, 2, 11, 6, 7, 12, 0, 5, 14, 9},
	},
	{
		{10, 0, 9, 14, 6, 3, 15, 5, 1, 13, 12, 7, 11, 4, 2, 8},
		{13, 7, 0, 9, 3, 4, 6, 10, 2, 8, 5, 14, 12, 11, 15, 1},
		{13, 6, 4, 9, 8, 15, 3, 0, 11, 1, 2, 12, 5, 10, 14, 7},
		{1, 10, 13, 0, 6, 9, 8, 7, 4, 15, 14, 3, 11, 5, 2, 12},
	},
	{
		{7, 13, 14, 3, 0, 6, 9, 10, 1, 2, 8, 5, 11, 12, 4, 15},
		{13, 8, 11, 5, 6, 15, 0, 3, 4, 7, 2, 12, 1, 10, 14, 9},
		{10, 6, 9, 0, 12, 11, 7, 13, 15, 1, 3, 14, 5, 2, 8, 4},
		{3, 15, 0, 6, 10, 1, 13, 8, 9, 4, 5, 11, 12, 7, 2, 14},
	},
	{
		{2, 12, 4, 1, 7, 10, 11, 6, 8, 5, 3, 15, 13, 0, 14, 9},
		{14, 11, 2, 12, 4, 7, 13, 1, 5, 0, 15, 10, 3, 9, 8, 6},
		{4, 2, 1, 11, 10, 13, 7, 8, 15, 9, 12, 5, 6, 3, 0, 14},
		{11, 8, 12, 7, 1, 14, 2, 13, 6, 15, 0, 9, 10, 4, 5, 3},
	},
	{
		{12, 1, 10, 15, 9, 2, 6, 8, 0, 13, 3, 4, 14, 7, 5, 11},
		{10, 15, 4, 2, 7, 12, 9, 5, 6, 1, 13, 14, 0, 11, 3, 8},
		{9, 14, 15, 5, 2, 8, 12, 3, 7, 0, 4, 10, 1, 13, 11, 6},
		{4, 3, 2, 12, 9, 5, 15, 10, 11, 14, 1, 7, 6, 0, 8, 13},
	},
	{
		{4, 11, 2, 14, 15, 0, 8, 13, 3, 12, 9, 7, 5, 10, 6, 1},
		{13, 0, 11, 7, 4, 9, 1, 10, 14, 3, 5, 12, 2, 15, 8, 6},
		{1, 4, 11, 13, 12, 3, 7, 14, 10, 15, 6, 8, 0, 5, 9, 2},
		{6, 11, 13, 8, 1, 4, 10, 7, 9, 5, 0, 15, 14, 2, 3, 12},
	},
	{
		{13, 2, 8, 4, 6, 15, 11, 1, 10, 9, 3, 14, 5, 0, 12, 7},
		{1, 15, 13, 8, 10, 3, 7, 4, 12, 5, 6, 11, 0, 14, 9, 2},
		{7, 11, 4, 1, 9, 12, 14, 2, 0, 6, 10, 13, 15, 3, 5, 8},
		{2, 1, 14, 7, 4, 10, 8, 13, 15, 12, 9, 0, 3, 5, 6, 11},
	},
}

func cryptSaltValue(c byte) byte {
	if c > 'Z' {
		c -= 6
	}
	if c > '9' {
		c -= 7
	}
	return c - '.'
}

func cryptEncodeChar(c byte) byte {
	c += '.'
	if c > '9' {
		c += 7
	}
	if c > 'Z' {
		c += 6
	}
	return c
}

// cryptPermute applies a 1-based bit selection table to src.
func cryptPermute(src []byte, table []byte) []byte {
	dst := make([]byte, len(table))
	for i, b := range table {
		dst[i] = src[b-1]
	}
	return dst
}

// crypt is the traditional DES-based crypt(3). password uses at most its
// first eight characters; salt must be two characters from [./0-9A-Za-z].
func crypt(password string, salt [2]byte) string {
	// Build the 64 bit key block from the low 7 bits of each password
	// character. Every eighth bit is a parity bit and is ignored by PC1.
	keyBits := make([]byte, 64)
	for i := 0; i < 8 && i < len(password); i++ {
		c := password[i]
		for j := 0; j < 7; j++ {
			keyBits[8*i+j] = (c >> (6 - j)) & 1
		}
	}

	// Key schedule.
	cd := cryptPermute(keyBits, cryptPC1[:])
	var subkeys [16][]byte
	for r := 0; r < 16; r++ {
		shift := int(cryptShifts[r])
		rotated := make([]byte, 56)
		for i := 0; i < 28; i++ {
			rotated[i] = cd[(i+shift)%28]
			rotated[28+i] = cd[28+(i+shift)%28]
		}
		cd = rotated
		subkeys[r] = cryptPermute(cd, cryptPC2[:])
	}

	// Perturb the expansion table with the salt. This is the difference
	// between crypt and plain DES.
	var e [48]byte
	copy(e[:], cryptE[:])
	for i := 0; i < 2; i++ {
		c := cryptSaltValue(salt[i])
		for j := 0; j < 6; j++ {
			if (c>>j)&1 == 1 {
				e[6*i+j], e[6*i+j+24] = e[6*i+j+24], e[6*i+j]
			}
		}
	}

	// Encrypt an all-zero block 25 times.
	block := make([]byte, 64)
	for iter := 0; iter < 25; iter++ {
		block = cryptPermute(block, cryptIP[:])
		l := block[:32]
		r := block[32:]

		for round := 0; round < 16; round++ {
			expanded := cryptPermute(r, e[:])
			for i := range expanded {
				expanded[i] ^= subkeys[round][i]
			}

			sOut := make([]byte, 32)
			for box := 0; box < 8; box++ {
				b := expanded[6*box : 6*box+6]
				row := b[0]<<1 | b[5]
				col := b[1]<<3 | b[2]<<2 | b[3]<<1 | b[4]
				v := cryptS[box][row][col]
				for j := 0; j < 4; j++ {
					sOut[4*box+j] = (v >> (3 - j)) & 1
				}
			}

			f := cryptPermute(sOut, cryptP[:])
			newR := make([]byte, 32)
			for i := 0; i < 32; i++ {
				newR[i] = l[i] ^ f[i]
			}
			l, r = r, newR
		}

		// Preoutput swaps the halves.
		block = append(append(make([]byte, 0, 64), r...), l...)
		block = cryptPermute(block, cryptFP[:])
	}

	out := make([]byte, 13)
	out[0] = salt[0]
	out[1] = salt[1]
	for i := 0; i < 11; i++ {
		var c byte
		for j := 0; j < 6; j++ {
			c <<= 1
			if 6*i+j < 64 {
				c |= block[6*i+j]
			}
		}
		out[i+2] = cryptEncodeChar(c)
	}

	return string(out)
}
