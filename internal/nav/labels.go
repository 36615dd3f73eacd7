package nav

var labels = map[string]map[string]string{
	Arabic: {
		"home":           "الرئيسية",
		"merchants":      "المتاجر",
		"pricing":        "💎 الباقات",
		"account":        "حسابي",
		"myStore":        "🏪 متجري",
		"joinAsMerchant": "انضم كتاجر",
		"import":         "🔌 استيراد",
		"debug":          "🔧 Debug",
		"login":          "تسجيل الدخول",
		"register":       "إنشاء حساب",
		"logout":         "تسجيل الخروج",
		"adminPanel":     "لوحة التحكم",
		"notifications":  "الإشعارات",
		"menu":           "القائمة",
	},
	English: {
		"home":           "Home",
		"merchants":      "Merchants",
		"pricing":        "💎 Pricing",
		"account":        "My Account",
		"myStore":        "🏪 My Store",
		"joinAsMerchant": "Join as Merchant",
		"import":         "🔌 Import",
		"debug":          "🔧 Debug",
		"login":          "Login",
		"register":       "Register",
		"logout":         "Logout",
		"adminPanel":     "Admin Panel",
		"notifications":  "Notifications",
		"menu":           "Menu",
	},
}
