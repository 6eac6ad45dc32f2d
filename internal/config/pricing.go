package config

// plan is one bookable plan. Prices are yen, tax included; durations are minutes.
type plan map[string]any

func facility(name, url, note string, plans ...plan) map[string]any {
	return map[string]any{"name": name, "url": url, "note": note, "plans": plans}
}

// DefaultPricing is the facility price list served when the config sets none.
// Each call returns a fresh copy.
func DefaultPricing() map[string]any {
	sakurado := facility("SAUNA SAKURADO", "https://sauna-sakurado.spa/", "会員制（初回お試し可）、部屋により設備・料金が異なる",
		plan{"name": "3-D（2名）- 125分", "price": 9000, "duration": 125, "capacity": 2},
		plan{"name": "3-F（4名）- 95分", "price": 15400, "duration": 95, "capacity": 4},
		plan{"name": "3-C（4名）- 125分", "price": 17600, "duration": 125, "capacity": 4},
		plan{"name": "3-E（6名）- 135分", "price": 24750, "duration": 135, "capacity": 6},
		plan{"name": "2-B（6名）- 140分", "price": 40900, "duration": 140, "capacity": 6},
		plan{"name": "2-A（6名）- 140分", "price": 46860, "duration": 140, "capacity": 6},
	)
	// One-off registration fee, no annual fee.
	sakurado["membershipFee"] = 22000

	return map[string]any{
		"base": facility("BASE Private sauna", "https://coubic.com/base-private-sauna", "平日/土日祝で料金が異なる",
			plan{"name": "80分1名", "weekday": 5000, "weekend": 5300, "duration": 80, "capacity": 1},
			plan{"name": "100分1名", "weekday": 5800, "weekend": 6100, "duration": 100, "capacity": 1},
			plan{"name": "120分1名", "weekday": 6500, "weekend": 6800, "duration": 120, "capacity": 1},
			plan{"name": "150分1名", "weekday": 7500, "weekend": 7800, "duration": 150, "capacity": 1},
			plan{"name": "80分2名", "weekday": 7800, "weekend": 8300, "duration": 80, "capacity": 2},
			plan{"name": "100分2名", "weekday": 9100, "weekend": 9600, "duration": 100, "capacity": 2},
			plan{"name": "120分2名", "weekday": 10300, "weekend": 10800, "duration": 120, "capacity": 2},
			plan{"name": "150分2名", "weekday": 12000, "weekend": 12500, "duration": 150, "capacity": 2},
		),
		"kudochi": facility("KUDOCHI sauna 福岡中洲店", "https://kudochi-sauna.com/fukuoka/", "部屋タイプ（定員）で料金が異なる",
			plan{"name": "Silk - 90分", "price": 6000, "duration": 90, "capacity": 2, "type": "スタンダード"},
			plan{"name": "Silk - 120分", "price": 8000, "duration": 120, "capacity": 2, "type": "スタンダード"},
			plan{"name": "Orca - 90分", "price": 6000, "duration": 90, "capacity": 2, "type": "スタンダード"},
			plan{"name": "Orca - 120分", "price": 8000, "duration": 120, "capacity": 2, "type": "スタンダード"},
			plan{"name": "Gold - 90分", "price": 6000, "duration": 90, "capacity": 2, "type": "スタンダード"},
			plan{"name": "Gold - 120分", "price": 8000, "duration": 120, "capacity": 2, "type": "スタンダード"},
			plan{"name": "Club - 90分", "price": 9000, "duration": 90, "capacity": 3, "type": "スーペリア"},
			plan{"name": "Club - 120分", "price": 12000, "duration": 120, "capacity": 3, "type": "スーペリア"},
			plan{"name": "Grove - 90分", "price": 9000, "duration": 90, "capacity": 3, "type": "スーペリア"},
			plan{"name": "Grove - 120分", "price": 12000, "duration": 120, "capacity": 3, "type": "スーペリア"},
			plan{"name": "Oasis - 120分", "price": 16000, "duration": 120, "capacity": 4, "type": "セミVIP"},
			plan{"name": "Eden - 120分", "price": 24000, "duration": 120, "capacity": 6, "type": "VIP"},
			plan{"name": "スタンダード ナイト5時間", "price": 12000, "duration": 300, "capacity": 2, "type": "ナイトパック"},
			plan{"name": "スーペリア ナイト5時間", "price": 18000, "duration": 300, "capacity": 3, "type": "ナイトパック"},
			plan{"name": "セミVIP ナイト5時間", "price": 24000, "duration": 300, "capacity": 4, "type": "ナイトパック"},
			plan{"name": "VIP ナイト5時間", "price": 35000, "duration": 300, "capacity": 6, "type": "ナイトパック"},
		),
		"saunaOoo": facility("SAUNA OOO FUKUOKA", "https://ooo-sauna.com/fukuoka.html", "追加1名で加算あり",
			plan{"name": "サンカク（2名/15.5㎡）", "price": 4500, "priceMax": 6000, "duration": 100, "capacity": 1, "extraPerson": 2500, "maxCapacity": 2},
			plan{"name": "マル（3名/17.0㎡）", "price": 5000, "priceMax": 6500, "duration": 100, "capacity": 1, "extraPerson": 2500, "maxCapacity": 3},
			plan{"name": "シカク（4名/23.4㎡）", "weekday": 7000, "weekend": 9000, "duration": 120, "capacity": 1, "extraPerson": 3000, "maxCapacity": 4},
		),
		"giraffeMiamitenjin": facility("GIRAFFE 南天神", "https://reserva.be/giraffe_minamitenjin", "人数で料金が異なる",
			plan{"name": "「陽」1名", "price": 6500, "duration": 120, "capacity": 1},
			plan{"name": "「陽」2名", "price": 8500, "duration": 120, "capacity": 2},
			plan{"name": "「陽」3名", "price": 10500, "duration": 120, "capacity": 3},
			plan{"name": "「陽」4名", "price": 12500, "duration": 120, "capacity": 4},
			plan{"name": "「陰」1名", "price": 6500, "duration": 120, "capacity": 1},
			plan{"name": "「陰」2名", "price": 8500, "duration": 120, "capacity": 2},
		),
		"giraffeTenjin": facility("GIRAFFE 天神", "https://reserva.be/giraffe_minamitenjin", "2名利用",
			plan{"name": "和の静寂 120分", "price": 8000, "duration": 120, "capacity": 2},
			plan{"name": "温冷交互 120分", "price": 8000, "duration": 120, "capacity": 2},
		),
		"sakurado": sakurado,
	}
}
