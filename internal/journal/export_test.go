package journal

var RebindDollar = rebindDollar
