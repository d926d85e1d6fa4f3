package validation

// ValidRoutingNumber applies the ABA checksum to a nine digit routing number:
// 3(d1+d4+d7) + 7(d2+d5+d8) + (d3+d6+d9) must be divisible by 10.
func ValidRoutingNumber(routing string) bool {
	if len(routing) != 9 {
		return false
	}
	var d [9]int
	for i := 0; i < 9; i++ {
		c := routing[i]
		if c < '0' || c > '9' {
			return false
		}
		d[i] = int(c - '0')
	}
	sum := 3*(d[0]+d[3]+d[6]) + 7*(d[1]+d[4]+d[7]) + (d[2] + d[5] + d[8])
	return sum != 0 && sum%10 == 0
}
